// Package domain contains the core entities of the job pipeline: jobs, their
// status lifecycle, storage locators, callbacks, and produced artifacts. It also
// defines the closed error taxonomy shared by every other package. It is
// independent of any specific infrastructure or delivery mechanism.
package domain
