package calendar

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateHoliday checks a holiday record for the defects the engine tolerates:
// missing or malformed dates, an inverted range, and the "All" sentinel mixed with
// specific classes.
func ValidateHoliday(h Holiday) error {
	if err := validate.Struct(h); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w %q: field %s failed %q", ErrInvalidHoliday, h.Title, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w %q: %v", ErrInvalidHoliday, h.Title, err)
	}

	if _, _, _, err := h.bounds(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHoliday, err)
	}

	if h.IsAllClasses() && len(h.Classes) > 1 {
		return fmt.Errorf("%w %q: classes mixes %q with specific classes", ErrInvalidHoliday, h.Title, AllClasses)
	}

	return nil
}
