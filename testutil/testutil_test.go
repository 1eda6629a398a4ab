/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

// MockT records assertion failures so the package's own helpers can be tested.
type MockT struct {
	Failed bool
	Format string
	Args   []interface{}
}

func (t *MockT) Errorf(format string, args ...interface{}) {
	t.Format = format
	t.Args = args
}

func (t *MockT) FailNow() {
	t.Failed = true
}
