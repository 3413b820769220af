package config

import "runtime"

// runtimeWorkers caps the default parse worker count.
func runtimeWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}
