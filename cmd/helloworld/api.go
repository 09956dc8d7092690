package main

import "time"

// Saying is the hello-world response.
type Saying struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// Person is stored in the people table.
type Person struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	FullName  string    `json:"fullName" gorm:"not null" validate:"required,max=255"`
	JobTitle  string    `json:"jobTitle" gorm:"not null" validate:"required,max=255"`
	YearBorn  int       `json:"yearBorn" validate:"min=0,max=10000"`
	CreatedAt time.Time `json:"-"`
}

// User is the principal of authenticated requests.
type User struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}
