//go:build !sonic

package mirror

import "github.com/goccy/go-json"

var jsonMarshal = json.Marshal
