// Command apicore serves and drives the API management core: a registry of
// endpoint definitions, the proxy that executes calls against them, and the
// field and variable stores that shape those calls.
package main

func main() {
	Execute()
}
