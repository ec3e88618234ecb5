//go:build !nogpu

package main

import _ "github.com/gogpu/tileconv/gpu" // register the wgpu convolution device
