package esdb

import "fmt"

// validateOptions enforces the option invariants: at most one Lower* and
// at most one Upper* option, and (for Observe) only {Recursive,
// LowerBound*, FromLatestEvent} are legal.
func validateOptions(op string, options []Option, forObserve bool) error {
	var haveLower, haveUpper bool
	for _, o := range options {
		if forObserve && !o.validForObserve() {
			return &InvalidUsageError{
				ClientError: ClientError{Op: op, Err: fmt.Errorf("option not valid for observe")},
				Field:       "options",
				Value:       fmt.Sprintf("%T", o),
			}
		}
		if b, ok := o.(boundOption); ok {
			if b.isLower() {
				if haveLower {
					return &InvalidUsageError{
						ClientError: ClientError{Op: op, Err: fmt.Errorf("more than one lower bound option")},
						Field:       "options",
						Value:       "lower_bound",
					}
				}
				haveLower = true
			} else {
				if haveUpper {
					return &InvalidUsageError{
						ClientError: ClientError{Op: op, Err: fmt.Errorf("more than one upper bound option")},
						Field:       "options",
						Value:       "upper_bound",
					}
				}
				haveUpper = true
			}
		}
	}
	return nil
}
