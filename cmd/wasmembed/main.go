// Command wasmembed compiles, inspects and calls WebAssembly modules.
package main

func main() {
	Execute()
}
