package payment

import (
    "errors"
    "fmt"
    "reflect"
    "strings"
    "time"

    "github.com/go-playground/validator/v10"

    "github.com/tinoosan/payments/internal/errs"
)

// Event is an inbound bank notification. Amount stays textual so that it can
// be parsed exactly.
type Event struct {
    OperationID    string    `json:"operation_id" validate:"required"`
    Amount         string    `json:"amount" validate:"required"`
    PayerINN       string    `json:"payer_inn" validate:"required"`
    DocumentNumber string    `json:"document_number" validate:"required"`
    DocumentDate   time.Time `json:"document_date" validate:"required"`
}

func (e Event) normalized() Event {
    e.OperationID = strings.TrimSpace(e.OperationID)
    e.Amount = strings.TrimSpace(e.Amount)
    e.PayerINN = strings.TrimSpace(e.PayerINN)
    e.DocumentNumber = strings.TrimSpace(e.DocumentNumber)
    return e
}

func newValidator() *validator.Validate {
    v := validator.New()
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
        if name == "-" { return "" }
        return name
    })
    return v
}

// checkPresence returns errs.ErrMissingFields naming every absent field.
func checkPresence(v *validator.Validate, e Event) error {
    err := v.Struct(e)
    if err == nil { return nil }
    var verrs validator.ValidationErrors
    if !errors.As(err, &verrs) { return err }
    fields := make([]string, 0, len(verrs))
    for _, fe := range verrs { fields = append(fields, fe.Field()) }
    return fmt.Errorf("%w: %s", errs.ErrMissingFields, strings.Join(fields, ", "))
}
