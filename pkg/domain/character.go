package domain

import (
	"fmt"
	"strings"
)

// Character は作品に登場するキャラクターの定義を保持します。
// 作品に追加された後は変更されず、名前が作品内での一意なキーになるのだ。
type Character struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// String はキャラクターの情報を文字列で返すのだ。
func (c Character) String() string {
	if c.Description == "" {
		return c.Name
	}
	return fmt.Sprintf("%s (%s)", c.Name, c.Description)
}

// Characters は作品のキャラクター一覧です。
type Characters []Character

// Names は登場順のキャラクター名を返します。
func (cs Characters) Names() []string {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.Name)
	}
	return names
}

// Find は名前（大文字小文字を区別しない）からキャラクターを特定します。
func (cs Characters) Find(name string) *Character {
	key := strings.TrimSpace(name)
	for _, c := range cs {
		if strings.EqualFold(c.Name, key) {
			res := c
			return &res
		}
	}
	return nil
}

// Add は名前が重複しない場合に限りキャラクターを追加した新しい一覧を返します。
func (cs Characters) Add(c Character) (Characters, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Description = strings.TrimSpace(c.Description)
	if c.Name == "" {
		return cs, fmt.Errorf("%w: キャラクター名は必須です", ErrValidation)
	}
	if cs.Find(c.Name) != nil {
		return cs, fmt.Errorf("%w: キャラクター '%s' は既に登録されています", ErrValidation, c.Name)
	}
	out := make(Characters, len(cs), len(cs)+1)
	copy(out, cs)
	return append(out, c), nil
}

// ValidateCharacters は作品作成時のキャラクター一覧を検証します。
func ValidateCharacters(cs Characters) error {
	if len(cs) == 0 {
		return fmt.Errorf("%w: キャラクターを1人以上選択してください", ErrValidation)
	}
	seen := make(map[string]struct{}, len(cs))
	for _, c := range cs {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if key == "" {
			return fmt.Errorf("%w: キャラクター名は必須です", ErrValidation)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: キャラクター '%s' が重複しています", ErrValidation, c.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// PredefinedCharacters は Zenith Teaching Hospital の常設キャストなのだ。
var PredefinedCharacters = Characters{
	// Consultants
	{Name: "Dr. Aituma", Description: "Consultant Obstetrician & Gynecologist"},
	{Name: "Dr. Adetunji", Description: "Consultant Paediatrician"},
	{Name: "Dr. Emeka", Description: "Consultant Psychiatrist"},
	{Name: `"Master"`, Description: "Consultant Paediatric Surgeon"},
	// Administration
	{Name: "Dr. Victor", Description: "Chief Medical Director"},
	{Name: "Uju", Description: "Hospital Accountant"},
	{Name: "Rachael", Description: "IT Personnel"},
	// Nursing
	{Name: "Nurse Chidinma", Description: "Senior Nurse, veteran of the hospital"},
	// Registrars
	{Name: "Dr. Gregory", Description: "Registrar, bridge between consultants and interns"},
	// Interns
	{Name: "Dr. Precious", Description: "Intern (Female)"},
	{Name: "Dr. Glory", Description: "Intern (Female)"},
	{Name: "Dr. Ese", Description: "Intern (Female)"},
	{Name: "Dr. Addy", Description: "Intern (Female)"},
	{Name: "Dr. Efua", Description: "Intern (Male)"},
	{Name: "Dr. Harry", Description: "Intern (Male)"},
	{Name: "Dr. Douglas", Description: "Intern (Male)"},
	{Name: "Dr. Black", Description: "Intern (Male)"},
	{Name: "Dr. Osahon", Description: "Intern (Male)"},
}

// PickPredefined は名前の一覧から常設キャストを選び出します。
// 見つからない名前は説明なしのキャラクターとして扱うのだ。
func PickPredefined(names []string) Characters {
	out := make(Characters, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if c := PredefinedCharacters.Find(n); c != nil {
			out = append(out, *c)
			continue
		}
		out = append(out, Character{Name: n})
	}
	return out
}
