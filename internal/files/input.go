package files

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/maneesh/filesmanager/internal/models"
)

// PageSize is the number of entries per listing page
const PageSize = 20

var validate = validator.New()

// UploadInput is the accepted body of an upload
type UploadInput struct {
	Name     string           `json:"name" validate:"required"`
	Type     models.FileType  `json:"type" validate:"required,oneof=folder file image"`
	ParentID models.ParentRef `json:"parentId"`
	IsPublic bool             `json:"isPublic"`
	Data     string           `json:"data" validate:"required_unless=Type folder"`
}

// fieldErrors maps a failing field to its client message
var fieldErrors = map[string]*apperr.Error{
	"Name": apperr.ErrMissingName,
	"Type": apperr.ErrMissingType,
	"Data": apperr.ErrMissingData,
}

// DecodeUploadInput reads an upload body. An empty body decodes to the zero
// input so that field validation reports what is missing. Unknown fields and
// malformed JSON are rejected with apperr.ErrInvalidBody.
func DecodeUploadInput(r io.Reader) (UploadInput, error) {
	var in UploadInput
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); errors.Is(err, io.EOF) {
		return UploadInput{}, nil
	} else if err != nil {
		return UploadInput{}, apperr.ErrInvalidBody
	}
	return in, nil
}

// Validate checks required fields in order name, type, data
func (in UploadInput) Validate() error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		for _, fe := range errs {
			if e, ok := fieldErrors[fe.Field()]; ok {
				return e
			}
		}
	}
	return apperr.ErrInvalidBody
}

// content decodes Data; clients send standard or URL-safe base64, padded or not
func (in UploadInput) content() ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(in.Data); err == nil {
			return data, nil
		}
	}
	return nil, apperr.ErrMissingData
}

// ParsePage converts the page query parameter; invalid or negative values are 0
func ParsePage(s string) int {
	page, err := strconv.Atoi(s)
	if err != nil || page < 0 {
		return 0
	}
	return page
}
