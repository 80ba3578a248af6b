//go:build sonic

package mirror

import "github.com/bytedance/sonic"

var jsonMarshal = sonic.Marshal
