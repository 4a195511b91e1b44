package handlers

import (
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// seat codes look like "1A", "12B" or "A3".
var seatCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{1,4}$`)

var registerOnce sync.Once

// RegisterValidators adds the custom binding rules used by request payloads.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("seatcode", func(fl validator.FieldLevel) bool {
			return seatCodePattern.MatchString(strings.TrimSpace(fl.Field().String()))
		})
	})
}
