// Package validate checks form input before any collaborator is called.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Error is a validation failure. Title and Description are shown to the user
// as a notification.
type Error struct {
	Field       string
	Title       string
	Description string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Description)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Title, e.Description, e.Field)
}

// AsError extracts a validation error from err.
func AsError(err error) (*Error, bool) {
	var ve *Error
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func Email(email string) error {
	if !emailPattern.MatchString(email) {
		return &Error{Field: "email", Title: "Invalid email", Description: "Please enter a valid email address."}
	}
	return nil
}

type SignUp struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

func (s SignUp) Validate() error {
	if s.Name == "" || s.Email == "" || s.Password == "" || s.ConfirmPassword == "" {
		return &Error{Title: "Missing information", Description: "Please fill in all fields."}
	}
	if err := Email(s.Email); err != nil {
		return err
	}
	if len(s.Password) < MinPasswordLength {
		return &Error{
			Field:       "password",
			Title:       "Password too short",
			Description: fmt.Sprintf("Password must be at least %d characters long.", MinPasswordLength),
		}
	}
	if s.Password != s.ConfirmPassword {
		return &Error{Field: "confirmPassword", Title: "Passwords don't match", Description: "Please make sure your passwords match."}
	}
	return nil
}

type SignIn struct {
	Email    string
	Password string
}

func (s SignIn) Validate() error {
	if s.Email == "" || s.Password == "" {
		return &Error{Title: "Missing information", Description: "Please enter both email and password."}
	}
	return nil
}

// Shipping is the checkout form.
type Shipping struct {
	FirstName  string
	LastName   string
	Email      string
	Address    string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

func (s Shipping) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"firstName", s.FirstName},
		{"lastName", s.LastName},
		{"email", s.Email},
		{"address", s.Address},
		{"city", s.City},
		{"state", s.State},
		{"postalCode", s.PostalCode},
		{"country", s.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &Error{Field: r.field, Title: "Missing information", Description: "Please fill in all required fields."}
		}
	}
	return Email(s.Email)
}

// Product is the admin product form. ImageCount counts both kept and newly
// uploaded images.
type Product struct {
	Name        string
	Description string
	Price       decimal.Decimal
	ImageCount  int
}

func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &Error{Field: "name", Title: "Missing information", Description: "Please provide a product name"}
	}
	if strings.TrimSpace(p.Description) == "" {
		return &Error{Field: "description", Title: "Missing information", Description: "Please provide a product description"}
	}
	if !p.Price.IsPositive() {
		return &Error{Field: "price", Title: "Invalid price", Description: "Price must be greater than zero"}
	}
	if p.ImageCount == 0 {
		return &Error{Field: "images", Title: "Missing images", Description: "Please add at least one product image"}
	}
	return nil
}
