//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

// Build compiles every executable into ./bin
func Build() error {
	mg.Deps(BuildDispenser)
	mg.Deps(BuildMeasureBuffers)
	mg.Deps(BuildFrameCheck)
	fmt.Println("Compilation finished")
	return nil
}

// The hdf5 output links against libhdf5, so the executables importing it
// need cgo.
func goBuild(name string, cgo bool) error {
	fmt.Printf("Building %s executable...\n", name)
	cmd := exec.Command("go", "build", "-o", "./bin/"+name, "./"+name)
	cmd.Env = os.Environ()
	if cgo {
		cmd.Env = append(cmd.Env,
			"CGO_ENABLED=1",
			fmt.Sprintf("CGO_LDFLAGS=%s", os.Getenv("CGO_LDFLAGS")),
			fmt.Sprintf("CGO_CFLAGS=%s", os.Getenv("CGO_CFLAGS")))
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func BuildDispenser() error {
	return goBuild("dispenser", true)
}

func BuildMeasureBuffers() error {
	return goBuild("measureBuffers", true)
}

func BuildFrameCheck() error {
	return goBuild("frameCheck", false)
}

// Test runs the unit tests of every package.
func Test() error {
	cmd := exec.Command("go", "test", "./...")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=1")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
