package main

import (
	"context"

	"github.com/kbukum/gowizard/orm"
)

// PersonDAO stores people through gorm.
type PersonDAO struct {
	sessions *orm.SessionFactory
}

func NewPersonDAO(sessions *orm.SessionFactory) *PersonDAO {
	return &PersonDAO{sessions: sessions}
}

func (d *PersonDAO) FindByID(ctx context.Context, id int64) (*Person, error) {
	var p Person
	if err := d.sessions.Session(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *PersonDAO) Create(ctx context.Context, p *Person) error {
	return d.sessions.Session(ctx).Create(p).Error
}

func (d *PersonDAO) FindAll(ctx context.Context) ([]Person, error) {
	people := []Person{}
	if err := d.sessions.Session(ctx).Order("id").Find(&people).Error; err != nil {
		return nil, err
	}
	return people, nil
}
