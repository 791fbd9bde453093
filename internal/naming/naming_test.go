package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"get", "Pet", "By", "Id"}, Words("getPetById"))
	assert.Equal(t, []string{"HTTP", "Status"}, Words("HTTPStatus"))
	assert.Equal(t, []string{"find", "pets", "by", "status"}, Words("find-pets_by status"))
	assert.Empty(t, Words("--"))
}

func TestPascal(t *testing.T) {
	tests := map[string]string{
		"getPetById":    "GetPetByID",
		"get_pet_by_id": "GetPetByID",
		"user-name":     "UserName",
		"api_key":       "APIKey",
		"":              "X",
	}
	for in, want := range tests {
		assert.Equal(t, want, Pascal(in), in)
	}
}

func TestCamel(t *testing.T) {
	assert.Equal(t, "petID", Camel("petId"))
	assert.Equal(t, "type_", Camel("type"))
	assert.Equal(t, "statusCode", Camel("status_code"))
}

func TestPackage(t *testing.T) {
	assert.Equal(t, "pet", Package("pet"))
	assert.Equal(t, "petstore", Package("Pet Store"))
	assert.Equal(t, "defaultapi", Package("default"))
	assert.Equal(t, "api2fa", Package("2fa"))
	assert.Equal(t, "defaultapi", Package("***"))
}

func TestDescription(t *testing.T) {
	assert.Equal(t, "Returns a single pet", Description("  Returns a\n single   pet "))
	long := make([]rune, 300)
	for i := range long {
		long[i] = 'a'
	}
	got := Description(string(long))
	assert.Len(t, []rune(got), maxDescriptionLength)
	assert.Equal(t, "...", got[len(got)-3:])
}
