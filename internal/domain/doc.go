// Package domain contains the business entities (User, Task) and their
// validation rules, free of persistence and transport concerns.
package domain
