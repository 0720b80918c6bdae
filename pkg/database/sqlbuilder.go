package database

import (
	"github.com/huandu/go-sqlbuilder"
)

func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}
