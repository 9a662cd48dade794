// Package testdata loads and fabricates the registration fixture shared by
// the registration flow and the database check.
package testdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
)

// DefaultFile is the fixture file name.
const DefaultFile = "test_data.json"

// VisaTestNumber is the card number sandbox payment gateways accept.
const VisaTestNumber = "4111111111111111"

type UserData struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	PhoneNumber     string `json:"phoneNumber"`
	Address         string `json:"dev_address"`
	Country         string `json:"dev_country"`
	City            string `json:"dev_city"`
	State           string `json:"dev_state"`
	Zip             string `json:"dev_zip"`
}

type PaymentData struct {
	CardNumber     string `json:"credit_card_number"`
	ExpirationDate string `json:"credit_card_expiration_date"`
	SecurityCode   string `json:"credit_security_code"`
}

// Fixture is the content of test_data.json.
type Fixture struct {
	UserData    UserData    `json:"user_data"`
	PaymentData PaymentData `json:"payment_data"`
}

// Load reads and validates a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test data: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid test data %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid test data %s: %w", path, err)
	}
	return &f, nil
}

// Save writes the fixture as indented JSON.
func (f *Fixture) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode test data: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write test data: %w", err)
	}
	return nil
}

// Validate reports every missing field at once.
func (f *Fixture) Validate() error {
	var errs []error
	required := []struct {
		name, value string
	}{
		{"user_data.first_name", f.UserData.FirstName},
		{"user_data.last_name", f.UserData.LastName},
		{"user_data.username", f.UserData.Username},
		{"user_data.password", f.UserData.Password},
		{"user_data.dev_country", f.UserData.Country},
		{"payment_data.credit_card_number", f.PaymentData.CardNumber},
		{"payment_data.credit_card_expiration_date", f.PaymentData.ExpirationDate},
		{"payment_data.credit_security_code", f.PaymentData.SecurityCode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}
	if f.UserData.Password != f.UserData.ConfirmPassword {
		errs = append(errs, errors.New("user_data.confirm_password does not match password"))
	}
	return errors.Join(errs...)
}

// Fake builds a valid fixture from seed. The same seed yields the same
// fixture.
func Fake(seed uint64) *Fixture {
	faker := gofakeit.New(seed)

	first := faker.FirstName()
	last := faker.LastName()
	password := faker.Password(true, true, true, true, false, 12)
	exp := faker.CreditCardExp()

	return &Fixture{
		UserData: UserData{
			FirstName:       first,
			LastName:        last,
			Username:        strings.ToLower(first+"."+last) + fmt.Sprintf("%d", faker.Number(100, 999)),
			Password:        password,
			ConfirmPassword: password,
			PhoneNumber:     faker.Phone(),
			Address:         faker.Street(),
			Country:         "United States",
			City:            faker.City(),
			State:           faker.State(),
			Zip:             faker.Zip(),
		},
		PaymentData: PaymentData{
			CardNumber:     VisaTestNumber,
			ExpirationDate: exp,
			SecurityCode:   faker.CreditCardCvv(),
		},
	}
}
