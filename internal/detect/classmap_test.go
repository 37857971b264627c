package detect

import (
	"testing"

	"visionpro-worker-go/internal/models"
)

func TestMapClass(t *testing.T) {
	cases := []struct {
		className string
		want      models.Category
	}{
		{"person", models.CategoryPerson},
		{"car", models.CategoryVehicle},
		{"truck", models.CategoryVehicle},
		{"bicycle", models.CategoryVehicle},
		{"dog", models.CategoryAnimal},
		{"giraffe", models.CategoryAnimal},
		{"potted plant", models.CategoryCustom},
		{"", models.CategoryCustom},
	}
	for _, tc := range cases {
		if got := MapClass(tc.className); got != tc.want {
			t.Errorf("MapClass(%q) = %q, want %q", tc.className, got, tc.want)
		}
	}
}
