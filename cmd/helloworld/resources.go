package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kbukum/gowizard/auth"
	"github.com/kbukum/gowizard/bootstrap"
	apperrors "github.com/kbukum/gowizard/errors"
	"github.com/kbukum/gowizard/rest"
	"github.com/kbukum/gowizard/views"
)

type helloWorldResource struct {
	template Template
	counter  atomic.Int64
}

func newHelloWorldResource(t Template) *helloWorldResource {
	return &helloWorldResource{template: t}
}

func (r *helloWorldResource) Register(g gin.IRouter) {
	g.GET("/hello-world", r.sayHello)
	g.POST("/hello-world", r.receiveHello)
	g.GET("/hello-world/date", r.receiveDate)
}

func (r *helloWorldResource) sayHello(c *gin.Context) {
	c.JSON(http.StatusOK, Saying{ID: r.counter.Add(1), Content: r.template.Render(c.Query("name"))})
}

func (r *helloWorldResource) receiveHello(c *gin.Context) {
	saying, err := rest.BindAndValidate[Saying](c, nil)
	if err != nil {
		rest.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, saying)
}

func (r *helloWorldResource) receiveDate(c *gin.Context) {
	value, ok := c.GetQuery("date")
	if !ok {
		c.String(http.StatusOK, "")
		return
	}
	date, err := time.Parse(time.DateOnly, value)
	if err != nil {
		rest.Abort(c, apperrors.InvalidInput("date", fmt.Sprintf("%q is not a date", value)))
		return
	}
	c.String(http.StatusOK, date.Format(time.DateOnly))
}

type peopleResource struct {
	dao   *PersonDAO
	views *views.Registry
	bind  func(c *gin.Context, out any) bool
}

func newPeopleResource(dao *PersonDAO, v *views.Registry, env *bootstrap.Environment) *peopleResource {
	return &peopleResource{dao: dao, views: v, bind: env.Rest().Bind}
}

func (r *peopleResource) Register(g gin.IRouter) {
	g.GET("/people", r.list)
	g.POST("/people", r.create)
	g.GET("/people/:id", r.get)
	g.GET("/people/:id/view_html", r.view("person.html"))
	g.GET("/people/:id/view_text", r.view("person.txt"))
}

func (r *peopleResource) list(c *gin.Context) {
	people, err := r.dao.FindAll(c.Request.Context())
	if err != nil {
		rest.Abort(c, apperrors.DatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, people)
}

func (r *peopleResource) create(c *gin.Context) {
	var p Person
	if !r.bind(c, &p) {
		return
	}
	p.ID = 0
	if err := r.dao.Create(c.Request.Context(), &p); err != nil {
		rest.Abort(c, apperrors.DatabaseError(err))
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (r *peopleResource) find(c *gin.Context) (*Person, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		rest.Abort(c, apperrors.InvalidInput("id", "must be a number"))
		return nil, false
	}
	p, err := r.dao.FindByID(c.Request.Context(), id)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rest.Abort(c, apperrors.NotFound("person", c.Param("id")))
		return nil, false
	case err != nil:
		rest.Abort(c, apperrors.DatabaseError(err))
		return nil, false
	}
	return p, true
}

func (r *peopleResource) get(c *gin.Context) {
	if p, ok := r.find(c); ok {
		c.JSON(http.StatusOK, p)
	}
}

func (r *peopleResource) view(template string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p, ok := r.find(c); ok {
			r.views.Render(c, http.StatusOK, views.View{Template: template, Data: p})
		}
	}
}

type protectedResource struct{}

func (protectedResource) Register(g gin.IRouter) {
	g.GET("/protected", auth.Required(), func(c *gin.Context) {
		user := auth.MustPrincipal[*User](c)
		c.String(http.StatusOK, "Hey there, %s. You know the secret!", user.Name)
	})
	g.GET("/protected/admin", auth.RolesAllowed(RoleAdmin), func(c *gin.Context) {
		user := auth.MustPrincipal[*User](c)
		c.String(http.StatusOK, "Hey there, %s. It looks like you are an admin.", user.Name)
	})
}
