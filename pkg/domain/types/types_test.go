package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

func TestCategoryID_Validate(t *testing.T) {
	tests := []struct {
		name    string
		id      types.CategoryID
		wantErr bool
	}{
		{"valid lowercase", "corrosion", false},
		{"valid underscore", "cotter_pins", false},
		{"valid hyphen", "connector-plates", false},
		{"valid with numbers", "plate-38", false},
		{"empty", "", true},
		{"uppercase", "Cotter_Pins", true},
		{"spaces", "cotter pins", true},
		{"starting with underscore", "_pins", true},
		{"ending with hyphen", "pins-", true},
		{"double underscore", "cotter__pins", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.id.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("CategoryID.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestState_Validate(t *testing.T) {
	gt.NoError(t, types.State("non_compliant").Validate())
	gt.NoError(t, types.State("straight").Validate())
	gt.Value(t, types.State("").Validate()).NotNil()
	gt.Value(t, types.State("Bent Plate").Validate()).NotNil()
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Connector Plates", "connector_plates"},
		{"Non-Compliant", "non_compliant"},
		{"  cotter pins ", "cotter_pins"},
		{"corrosion", "corrosion"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			gt.Value(t, types.NormalizeLabel(tt.input)).Equal(tt.want)
		})
	}
}

func TestNewNamespaceID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  types.NamespaceID
	}{
		{"plain", "plant", "plant"},
		{"mixed case and spaces", "Plant A North", "plant_a_north"},
		{"punctuation run collapses", "acme--corp!!2024", "acme_corp_2024"},
		{"empty falls back to default", "", types.DefaultNamespace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Value(t, types.NewNamespaceID(tt.input)).Equal(tt.want)
		})
	}
}

func TestNamespaceID_OrDefault(t *testing.T) {
	gt.Value(t, types.NamespaceID("").OrDefault()).Equal(types.DefaultNamespace)
	gt.Value(t, types.NamespaceID("site_1").OrDefault()).Equal(types.NamespaceID("site_1"))
}

func TestNamespaceID_Validate(t *testing.T) {
	gt.NoError(t, types.DefaultNamespace.Validate())
	gt.NoError(t, types.NamespaceID("plant_a").Validate())
	gt.Value(t, types.NamespaceID("").Validate()).NotNil()
	gt.Value(t, types.NamespaceID("Plant A").Validate()).NotNil()
}
