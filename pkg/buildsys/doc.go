// Package buildsys evaluates Starlark build scripts (tasks.star) and runs the tasks they
// declare through mvdan.cc/sh, a portable shell runtime.
//
// A root script includes other builds with include_build() or include_builds() and
// declares composites over them with composite(). Each included build has a script of
// its own which declares the tasks a composite ends up running.
package buildsys
