// Package testmapper holds the mapper interfaces, models and mapper
// resources shared by package tests. zz_sqlmapper_gen.go is produced by
// cmd/mappergen.
//
//sqlmapper:Mappers
package testmapper

//go:generate go run github.com/bionicotaku/lingo-sqlmapper/cmd/mappergen -dir . ./...
