package service

import (
	"fmt"

	"farm-market/internal/models"
	"farm-market/internal/util"
)

// Stock rule names, also used as metric labels.
const (
	RuleNotFound    = "not_found"
	RuleUnavailable = "unavailable"
	RuleOutOfStock  = "out_of_stock"
	RuleExceeds     = "exceeds_stock"
)

// StockViolation describes why a cart write would exceed what a product can supply.
type StockViolation struct {
	Rule      string
	Message   string
	Available int
	Held      int
	Requested int
}

// CheckStock applies the stock rules in order and returns the first one
// violated, or nil. held is the quantity already in the cart and requested
// the amount being added to it. product may be nil.
func CheckStock(product *models.Product, held, requested int) *StockViolation {
	v := &StockViolation{Held: held, Requested: requested}
	switch {
	case product == nil:
		v.Rule, v.Message = RuleNotFound, "product not found"
	case product.Status != models.ProductActive:
		v.Rule, v.Message = RuleUnavailable, "this product is currently unavailable"
	case product.Quantity <= 0:
		v.Rule, v.Message = RuleOutOfStock, "this product is out of stock"
	case held+requested > product.Quantity:
		v.Rule = RuleExceeds
		v.Available = product.Quantity
		if held > 0 {
			v.Message = fmt.Sprintf("only %d available (%d already in cart)", product.Quantity, held)
		} else {
			v.Message = fmt.Sprintf("only %d available", product.Quantity)
		}
	default:
		return nil
	}
	return v
}

// asError converts a violation to the error returned to callers.
func (v *StockViolation) asError() *Error {
	var e *Error
	if v.Rule == RuleNotFound {
		e = NotFound("%s", v.Message)
	} else {
		e = BusinessRule("%s", v.Message)
	}
	if v.Rule == RuleExceeds {
		e.WithDetail("available_quantity", v.Available).
			WithDetail("requested_quantity", v.Held+v.Requested)
	}
	return e
}

func rejectStock(v *StockViolation) error {
	util.StockRejectionsTotal.WithLabelValues(v.Rule).Inc()
	return v.asError()
}

// Issue actions suggested for a stale cart line.
const (
	ActionRemove = "remove"
	ActionReduce = "reduce"
)

// StockIssue is one cart line that can no longer be fulfilled as is.
type StockIssue struct {
	ItemID      string `json:"item_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Issue       string `json:"issue"`
	Action      string `json:"action"`
	MaxQuantity int    `json:"max_quantity,omitempty"`
}

// RevalidateCart checks every line against current product state. It
// reports problems and never changes the cart.
func RevalidateCart(items []models.CartItem, products map[string]*models.Product) []StockIssue {
	issues := []StockIssue{}
	for _, item := range items {
		product := products[item.ProductID]
		v := CheckStock(product, 0, item.Quantity)
		if v == nil {
			continue
		}

		issue := StockIssue{
			ItemID:    item.ID,
			ProductID: item.ProductID,
			Action:    ActionRemove,
		}
		if product != nil {
			issue.ProductName = product.Name
		}
		switch v.Rule {
		case RuleNotFound:
			issue.Issue = "product no longer available"
		case RuleUnavailable:
			issue.Issue = "product is currently unavailable"
		case RuleOutOfStock:
			issue.Issue = "product is out of stock"
		case RuleExceeds:
			issue.Issue = fmt.Sprintf("only %d available (you have %d)", product.Quantity, item.Quantity)
			issue.Action = ActionReduce
			issue.MaxQuantity = product.Quantity
		}
		issues = append(issues, issue)
	}
	return issues
}
