package domain

import "errors"

var ErrVendorNotFound = errors.New("vendor not found")

// Vendor 是市场中的商家。商家的增删改由外部系统负责，这里只读。
type Vendor struct {
	ID      string `json:"id"`
	Handle  string `json:"handle"`
	Name    string `json:"name"`
	LogoURL string `json:"logo,omitempty"`
}
