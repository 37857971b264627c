package detect

import "visionpro-worker-go/internal/models"

// classCategories is the fixed lookup from raw detector labels (COCO names)
// to the internal event taxonomy. Unmapped labels become "custom" rather
// than being dropped.
var classCategories = map[string]models.Category{
	"person": models.CategoryPerson,

	"bicycle":    models.CategoryVehicle,
	"car":        models.CategoryVehicle,
	"motorcycle": models.CategoryVehicle,
	"bus":        models.CategoryVehicle,
	"train":      models.CategoryVehicle,
	"truck":      models.CategoryVehicle,

	"bird":     models.CategoryAnimal,
	"cat":      models.CategoryAnimal,
	"dog":      models.CategoryAnimal,
	"horse":    models.CategoryAnimal,
	"sheep":    models.CategoryAnimal,
	"cow":      models.CategoryAnimal,
	"elephant": models.CategoryAnimal,
	"bear":     models.CategoryAnimal,
	"zebra":    models.CategoryAnimal,
	"giraffe":  models.CategoryAnimal,
}

// MapClass returns the internal category for a raw class label.
func MapClass(className string) models.Category {
	if cat, ok := classCategories[className]; ok {
		return cat
	}
	return models.CategoryCustom
}
