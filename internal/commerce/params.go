package commerce

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/vampirenirmal/convocart/internal/action"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeParams maps loosely-typed action params onto a typed, tagged param
// struct and validates it. Handlers turn the returned error into a
// validation-failure Result; it never propagates past the handler.
func decodeParams(params action.Params, dst any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding params: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("validating params: %w", err)
	}
	return nil
}

type viewProductParams struct {
	ProductID string `json:"product_id" validate:"required"`
}

type addToCartParams struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=99"`
}

type removeFromCartParams struct {
	ProductID string `json:"product_id" validate:"required"`
}

type applyDiscountParams struct {
	Code string `json:"code" validate:"required,alphanum,min=3,max=32"`
}

type setAddressParams struct {
	Address string `json:"address" validate:"required,min=5"`
}
