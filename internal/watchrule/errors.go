package watchrule

import (
	"fmt"

	"github.com/kubenetlabs/watchrule/internal/watcherr"
)

func errRequired(field string) error {
	return watcherr.New(watcherr.Validation, "Rule.Validate", fmt.Errorf("%s is required", field))
}

func errInvalid(field, reason string) error {
	return watcherr.New(watcherr.Validation, "Rule.Validate", fmt.Errorf("%s: %s", field, reason))
}
