package eventstore

import (
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/richardliu001/identity-service/internal/model"
)

// Commands that carry entity-specific values.
const (
	CommandChangeEmail        = "CHANGE_EMAIL"
	CommandChangeName         = "CHANGE_NAME"
	CommandMagicLogin         = "MAGIC_LOGIN"
	CommandChangeSlug         = "CHANGE_SLUG"
	CommandRotateKey          = "ROTATE_KEY"
	CommandChangeRedirectURIs = "CHANGE_REDIRECT_URIS"
)

// Rules maps a value field to its validator tag.
type Rules map[string]string

// Schema lists the commands an entity type accepts and the rules their values
// must satisfy. Values outside the rules are rejected.
type Schema map[string]Rules

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var (
	nameRule = "omitempty,min=1,max=128"
	noValues = Rules{}
)

// Schemas holds the schema of every entity type.
var Schemas = map[string]Schema{
	model.EntityUser: {
		model.CommandCreate: {
			"email":      "required,email,max=254",
			"givenName":  nameRule,
			"familyName": nameRule,
		},
		CommandChangeEmail: {"email": "required,email,max=254"},
		CommandChangeName:  {"givenName": nameRule, "familyName": nameRule},
		CommandMagicLogin:  noValues,
	},
	model.EntityOrganization: {
		model.CommandCreate: {"name": "required,min=1,max=128", "slug": "required,slug"},
		CommandChangeName:   {"name": "required,min=1,max=128"},
		CommandChangeSlug:   {"slug": "required,slug"},
	},
	model.EntityApplication: {
		model.CommandCreate: {
			"name":         "required,min=1,max=128",
			"key":          "required,min=8,max=128",
			"redirectUris": "omitempty,dive,url",
		},
		CommandChangeName:         {"name": "required,min=1,max=128"},
		CommandRotateKey:          {"key": "required,min=8,max=128"},
		CommandChangeRedirectURIs: {"redirectUris": "omitempty,dive,url"},
	},
	model.EntityWorkspace: {
		model.CommandCreate: {
			"name":         "required,min=1,max=128",
			"slug":         "required,slug",
			"application":  "required",
			"organization": "required",
		},
		CommandChangeName: {"name": "required,min=1,max=128"},
		CommandChangeSlug: {"slug": "required,slug"},
	},
	model.EntityMember: {
		model.CommandCreate: {"user": "required", "workspace": "required"},
	},
	model.EntityManager: {
		model.CommandCreate: {"user": "required", "organization": "required"},
	},
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return v
}

// rulesFor returns the rules of command, with DELETE and RESTORE accepted by
// every entity type.
func rulesFor(entityType, command string) (Rules, bool) {
	schema, ok := Schemas[entityType]
	if !ok {
		return nil, false
	}
	if r, ok := schema[command]; ok {
		return r, true
	}
	if command == model.CommandDelete || command == model.CommandRestore {
		return noValues, true
	}
	return nil, false
}
