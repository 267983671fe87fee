// Package registration persists registration aggregates.
package registration

import "errors"

// ErrUdyamNumberTaken is returned when a generated Udyam number collides with
// an issued one. Callers retry with a fresh number.
var ErrUdyamNumberTaken = errors.New("udyam number already issued")
