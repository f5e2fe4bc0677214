package prompt

import "github.com/digkill/genstudio/internal/models"

var helperTemplates = []models.HelperTemplate{
	{
		ID:          "target-audience",
		Name:        "Target audience",
		Instruction: "Adapt the scene, people and visual language so it speaks directly to this target audience.",
	},
	{
		ID:          "brand-colors",
		Name:        "Brand colors",
		Instruction: "Build the color palette of the image around these brand colors.",
	},
	{
		ID:          "product-focus",
		Name:        "Product focus",
		Instruction: "Make this product or offering the clear focal point of the composition.",
	},
	{
		ID:          "mood",
		Name:        "Mood",
		Instruction: "Convey this emotional mood through lighting, color and expression.",
	},
	{
		ID:          "setting",
		Name:        "Setting",
		Instruction: "Place the scene in this setting or location.",
	},
	{
		ID:          "call-to-action",
		Name:        "Call to action",
		Instruction: "Leave clear space and visual emphasis that supports this marketing message.",
	},
}

// Helpers returns a copy of the built-in helper catalog.
func Helpers() []models.HelperTemplate {
	out := make([]models.HelperTemplate, len(helperTemplates))
	copy(out, helperTemplates)
	return out
}

func LookupHelper(id string) (models.HelperTemplate, bool) {
	for _, h := range helperTemplates {
		if h.ID == id {
			return h, true
		}
	}
	return models.HelperTemplate{}, false
}
