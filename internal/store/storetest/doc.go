// Package storetest holds behavioural suites that every implementation of the
// store contracts must pass. Backend packages call them from their own tests.
package storetest
