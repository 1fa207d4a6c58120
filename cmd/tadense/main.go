/*
 *	Copyright 2024 Cale Lewis
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// tadense is a dense tiled matrix-multiply benchmark: it fills two square
// tiled matrices, evaluates c("m,n") = a("m,k") * b("k,n") repeatedly and
// reports the sustained GFLOPS.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/calewis/tiledarray/array"
	"github.com/calewis/tiledarray/expr"
	"github.com/calewis/tiledarray/runtime"
	"github.com/calewis/tiledarray/shapes"
	"github.com/calewis/tiledarray/types/ranges"
)

var (
	flagSize   = flag.Int("size", 1024, "matrix size (rows == cols)")
	flagBlock  = flag.Int("block", 128, "block (tile) size; must divide size")
	flagRepeat = flag.Int("repeat", 5, "number of multiply repetitions")
	flagProcs  = flag.Int("procs", 4, "number of ranks in the SPMD world")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagSize <= 0 || *flagBlock <= 0 || *flagSize%*flagBlock != 0 {
		fmt.Fprintln(os.Stderr, "error: matrix size must be a positive multiple of the block size")
		os.Exit(2)
	}
	if *flagRepeat <= 0 {
		fmt.Fprintln(os.Stderr, "error: repetitions must be positive")
		os.Exit(2)
	}

	err := runtime.Run(*flagProcs, func(world *runtime.World) error {
		return gemm(world, *flagSize, *flagBlock, *flagRepeat)
	})
	if err != nil {
		klog.Exitf("benchmark failed: %v", err)
	}
}

func gemm(world *runtime.World, size, block, repeat int) error {
	tr1 := ranges.Uniform(size, block)
	trange := ranges.NewTiledRange(tr1, tr1)

	if world.Rank() == 0 {
		fmt.Printf("TiledArray: dense matrix multiply benchmark\n")
		fmt.Printf("Number of ranks   = %d\n", world.Size())
		fmt.Printf("Matrix size       = %dx%d\n", size, size)
		fmt.Printf("Block size        = %dx%d\n", block, block)
		fmt.Printf("Memory per matrix = %s\n", humanize.IBytes(uint64(size)*uint64(size)*8))
	}

	a := array.New(world, trange, shapes.Dense(), nil)
	b := array.New(world, trange, shapes.Dense(), nil)
	a.Fill(1)
	b.Fill(1)
	c := array.Shell(world)

	var bar *progressbar.ProgressBar
	if world.Rank() == 0 {
		bar = progressbar.Default(int64(repeat), "multiplying")
	}

	start := time.Now()
	for i := 0; i < repeat; i++ {
		err := expr.Tsr(c, "m,n").Assign(
			expr.Mult(expr.Tsr(a, "m,k"), expr.Tsr(b, "k,n")))
		if err != nil {
			return err
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	elapsed := time.Since(start)

	if world.Rank() == 0 {
		n := float64(size)
		flops := 2 * n * n * n * float64(repeat)
		fmt.Printf("Average wall time = %v\n", elapsed/time.Duration(repeat))
		fmt.Printf("Average GFLOPS    = %.3f\n", flops/elapsed.Seconds()/1e9)
		fmt.Printf("||C||_F           = %.3f\n", c.Norm())
	}
	return nil
}
