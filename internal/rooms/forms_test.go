package rooms

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/internal/validation"
)

func TestValidateAlias(t *testing.T) {
	assert.Equal(t, "You must specify the name of your alias.", ValidateAlias(""))
	assert.Equal(t, "Invalid alias.", ValidateAlias("Has Spaces"))
	assert.Equal(t, "Invalid alias.", ValidateAlias("-leading"))
	assert.Equal(t, "Invalid alias.", ValidateAlias("x"))
	assert.Contains(t, ValidateAlias("admin"), "reserved")
	assert.Empty(t, ValidateAlias("jazz-jam"))
}

func TestReservedAliasesMatchPattern(t *testing.T) {
	for alias := range reservedAliases {
		assert.True(t, aliasRe.MatchString(alias), "%q can never be chosen, so reserving it does nothing", alias)
	}
	assert.Equal(t, "Invalid alias.", ValidateAlias("r"))
	assert.Equal(t, "Invalid alias.", ValidateAlias("g"))
}

func TestValidCRSid(t *testing.T) {
	assert.True(t, ValidCRSid("abc12"))
	assert.True(t, ValidCRSid("spqr"))
	assert.False(t, ValidCRSid("ABC12"))
	assert.False(t, ValidCRSid("a1"))
	assert.False(t, ValidCRSid("abc12@cam.ac.uk"))
}

func TestCreateForm_Validate(t *testing.T) {
	f := CreateForm{Name: "  Weekly jam  "}
	auth, err := f.Validate()
	require.NoError(t, err)
	assert.Equal(t, models.AuthPublic, auth)
	assert.Equal(t, "Weekly jam", f.Name)

	f = CreateForm{Name: "J", Authentication: "carrier-pigeon"}
	_, err = f.Validate()
	fields, ok := validation.Fields(err)
	require.True(t, ok)
	assert.Equal(t, "That name is too short.", fields["name"])
	assert.Equal(t, "Choose how attendees will join.", fields["authentication"])
}

func TestDetailsForm_Apply(t *testing.T) {
	room := &models.Room{ID: "r1", Name: "Old", Alias: strPtr("old-alias")}
	f := DetailsForm{
		Name:           "New name",
		Description:    "line one\nline two",
		Authentication: "password",
		Password:       "letmein",
		AliasChecked:   true,
		Alias:          " Jazz-Jam ",
		Whitelist:      " ABC12 ",
	}
	require.NoError(t, f.Apply(room))
	assert.Equal(t, "New name", room.Name)
	assert.Equal(t, "jazz-jam", *room.Alias)
	assert.Equal(t, "letmein", *room.Password)
	assert.Equal(t, models.AuthPassword, room.Authentication)
	assert.Equal(t, "abc12", f.Whitelist)

	f = DetailsForm{Name: "New name", Authentication: "public"}
	require.NoError(t, f.Apply(room))
	assert.Nil(t, room.Alias, "unchecking the alias clears it")
	assert.Nil(t, room.Description)
}

func TestDetailsForm_ApplyLeavesRoomOnError(t *testing.T) {
	room := &models.Room{ID: "r1", Name: "Old"}
	f := DetailsForm{Name: "N", Authentication: "password", AliasChecked: true, Alias: "api", Whitelist: "not a crsid"}
	err := f.Apply(room)
	fields, ok := validation.Fields(err)
	require.True(t, ok)
	for _, k := range []string{"name", "password", "alias", "whitelist"} {
		assert.Contains(t, fields, k)
	}
	assert.Equal(t, "Old", room.Name)
}

func TestFeaturesForm_Settings(t *testing.T) {
	f := FeaturesForm{WelcomeText: "Hello", BannerColor: "#0c5ead", MuteOnStart: true}
	d, err := f.Settings()
	require.NoError(t, err)
	assert.Equal(t, "Hello", *d.WelcomeText)
	assert.Nil(t, d.BannerText)
	assert.Equal(t, "#0c5ead", *d.BannerColor)
	assert.True(t, d.MuteOnStart)

	f = FeaturesForm{WelcomeText: strings.Repeat("a", maxWelcomeText+1), BannerColor: "blue"}
	_, err = f.Settings()
	fields, ok := validation.Fields(err)
	require.True(t, ok)
	assert.Equal(t, "Welcome text is too long.", fields["welcome_text"])
	assert.Equal(t, "Choose a colour such as #0c5ead.", fields["banner_color"])

	f = FeaturesForm{BannerColor: " #FFAA00 ", BannerText: strings.Repeat("b", 201)}
	_, err = f.Settings()
	fields, ok = validation.Fields(err)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"banner_text": "Banner text is too long."}, fields)
}
