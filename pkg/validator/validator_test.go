package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	PatientID string  `json:"patient_id" validate:"required,uuid"`
	Modality  string  `json:"modality" validate:"required,oneof=in_person virtual"`
	Status    *string `json:"status" validate:"omitempty,oneof=confirmed cancelled"`
}

func TestValidate_OK(t *testing.T) {
	status := "confirmed"
	err := NewValidator().Validate(&sample{
		PatientID: "0b6ad9a4-1d55-4c44-8a3c-6d0f3b0f2f11",
		Modality:  "virtual",
		Status:    &status,
	})
	assert.NoError(t, err)
}

func TestValidate_FormatsJSONFieldNames(t *testing.T) {
	bad := "pending"
	err := NewValidator().Validate(&sample{PatientID: "nope", Status: &bad})
	require.Error(t, err)

	msgs := FormatValidationErrors(err)
	assert.Equal(t, "patient_id must be a UUID", msgs["patient_id"])
	assert.Equal(t, "modality is required", msgs["modality"])
	assert.Equal(t, "status must be one of: confirmed cancelled", msgs["status"])
}

func TestFormatValidationErrors_OtherError(t *testing.T) {
	assert.Empty(t, FormatValidationErrors(assert.AnError))
}
