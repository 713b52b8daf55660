package shopify

import (
	"fmt"
	"strings"
)

// ToGid normalizes a webhook-payload id (numeric or string) into the
// platform's global-id format. Values already in gid form pass through.
func ToGid(model string, id any) string {
	value := strings.TrimSpace(fmt.Sprint(id))
	if strings.HasPrefix(strings.ToLower(value), "gid://") {
		return value
	}
	return fmt.Sprintf("gid://shopify/%s/%s", model, value)
}
