package preferences

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const DefaultTag = "balanced"

// Option is one selectable diet or goal.
type Option struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

var DietOptions = []Option{
	{Value: "balanced", Label: "Balanced", Description: "A mix of all nutrients"},
	{Value: "high-protein", Label: "High Protein", Description: "Focus on protein-rich meals"},
	{Value: "low-carb", Label: "Low Carb", Description: "Minimize carbohydrate intake"},
	{Value: "vegetarian", Label: "Vegetarian", Description: "No meat or fish"},
	{Value: "vegan", Label: "Vegan", Description: "No animal products"},
	{Value: "keto", Label: "Keto", Description: "Very low carb, high fat"},
	{Value: "paleo", Label: "Paleo", Description: "Whole foods, no processed items"},
}

var GoalOptions = []Option{
	{Value: "balanced", Label: "Balanced", Description: "Maintain current health"},
	{Value: "weight-loss", Label: "Weight Loss", Description: "Calorie-conscious meals"},
	{Value: "muscle-gain", Label: "Muscle Gain", Description: "High protein for building"},
	{Value: "energy", Label: "Energy Boost", Description: "Sustained energy throughout day"},
}

// CommonAllergies are offered during onboarding. Other tags are allowed.
var CommonAllergies = []string{
	"Nuts",
	"Dairy",
	"Eggs",
	"Soy",
	"Gluten",
	"Shellfish",
	"Fish",
	"Wheat",
}

var ErrInvalid = errors.New("invalid preferences")

// Preferences are the dietary selections that parameterize meal generation.
type Preferences struct {
	Diet      string   `json:"diet"`
	Allergies []string `json:"allergies"`
	Goal      string   `json:"goal"`
}

func Default() Preferences {
	return Preferences{Diet: DefaultTag, Allergies: []string{}, Goal: DefaultTag}
}

func hasOption(opts []Option, v string) bool {
	return slices.ContainsFunc(opts, func(o Option) bool { return o.Value == v })
}

func IsValidDiet(v string) bool { return hasOption(DietOptions, v) }

func IsValidGoal(v string) bool { return hasOption(GoalOptions, v) }

// Validate checks diet and goal against the option lists and rejects blank
// allergy tags.
func (p Preferences) Validate() error {
	if !IsValidDiet(p.Diet) {
		return fmt.Errorf("%w: unknown diet %q", ErrInvalid, p.Diet)
	}
	if !IsValidGoal(p.Goal) {
		return fmt.Errorf("%w: unknown goal %q", ErrInvalid, p.Goal)
	}
	for _, a := range p.Allergies {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("%w: empty allergy", ErrInvalid)
		}
	}
	return nil
}

// Clone returns a copy that shares no slice with p. A nil allergy list
// becomes empty.
func (p Preferences) Clone() Preferences {
	c := p
	c.Allergies = make([]string, len(p.Allergies))
	copy(c.Allergies, p.Allergies)
	return c
}

// Equal compares allergies as a set; order does not matter.
func (p Preferences) Equal(o Preferences) bool {
	if p.Diet != o.Diet || p.Goal != o.Goal {
		return false
	}
	a, b := slices.Clone(p.Allergies), slices.Clone(o.Allergies)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}

// ToggleAllergy adds tag if absent, removes it otherwise.
func (p Preferences) ToggleAllergy(tag string) Preferences {
	c := p.Clone()
	if i := slices.Index(c.Allergies, tag); i >= 0 {
		c.Allergies = slices.Delete(c.Allergies, i, i+1)
		return c
	}
	c.Allergies = append(c.Allergies, tag)
	return c
}

// normalize replaces unknown diet or goal tags with the default so loaded
// data always satisfies Validate's tag rules.
func (p Preferences) normalize() Preferences {
	c := p.Clone()
	if !IsValidDiet(c.Diet) {
		c.Diet = DefaultTag
	}
	if !IsValidGoal(c.Goal) {
		c.Goal = DefaultTag
	}
	return c
}
