package ai

import (
	"fmt"
	"strings"
	"unicode"

	"waifugen/pkg/domain"
)

const (
	promptPrefix       = "masterpiece, best quality, 1girl, "
	maxAttributeLength = 48
)

// BuildPrompt turns the creator form into the positive prompt.
func BuildPrompt(a domain.Attributes) string {
	clothes := ""
	if a.FullClothes != "" {
		clothes = a.FullClothes
	}
	if a.OnePieceClothesColor != "" {
		clothes = "((" + a.OnePieceClothesColor + " " + clothes + "))"
	}
	if a.UpperBodyClothes != "" {
		clothes = "((" + a.UpperClothesColor + " " + a.UpperBodyClothes + ")), "
	}
	if a.LowerBodyClothes != "" {
		clothes += "((" + a.LowerClothesColor + " " + a.LowerBodyClothes + "))"
	}

	parts := []string{
		a.Age, a.BodyShape, a.BreastSize, a.Expression, a.EyeColor,
		a.HairColor, a.HairLength, a.HairType, clothes,
	}
	return promptPrefix + strings.Join(parts, ", ")
}

// ValidateAttributes rejects values that could smuggle prompt syntax.
func ValidateAttributes(a domain.Attributes) error {
	fields := []struct {
		name  string
		value string
	}{
		{"age", a.Age},
		{"bodyShape", a.BodyShape},
		{"breastSize", a.BreastSize},
		{"expression", a.Expression},
		{"eyeColor", a.EyeColor},
		{"hairColor", a.HairColor},
		{"hairLength", a.HairLength},
		{"hairType", a.HairType},
		{"fullClothes", a.FullClothes},
		{"onePieceClothesColor", a.OnePieceClothesColor},
		{"upperBodyClothes", a.UpperBodyClothes},
		{"upperClothesColor", a.UpperClothesColor},
		{"lowerBodyClothes", a.LowerBodyClothes},
		{"lowerClothesColor", a.LowerClothesColor},
	}
	for _, f := range fields {
		if err := ValidateAttribute(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAttribute checks a single free-text value. Empty is allowed.
func ValidateAttribute(name, value string) error {
	if len([]rune(value)) > maxAttributeLength {
		return fmt.Errorf("%w: %s is too long", ErrInvalidAttribute, name)
	}
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '\'' {
			continue
		}
		return fmt.Errorf("%w: %s contains %q", ErrInvalidAttribute, name, r)
	}
	return nil
}
