// Package currency renders monetary amounts for display: two decimal places, a
// comma as the decimal mark and a space between thousands groups. Values that
// are not numeric pass through Format unchanged, which makes it safe to call
// from templates and JSON builders on arbitrary fields.
package currency
