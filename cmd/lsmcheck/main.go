// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Lsmcheck exercises an LSM tree against a storage prefix: it
// inserts random items over several commits, reopens the last
// committed layer in a fresh tree, and verifies that the reopened
// tree holds exactly the items that were written.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"math/rand"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/config"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/lsmtree"
	"github.com/grailbio/lsmtree/keys"
	"github.com/grailbio/lsmtree/layer"
	"github.com/grailbio/lsmtree/merge"
	"github.com/grailbio/lsmtree/store"
)

func init() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: lsmcheck [-prefix path] [-n items] [-commits n]

Command lsmcheck writes random items to an LSM tree over a number of
commits, with layers stored under the given prefix (a local directory
or an s3:// URL). It then reopens the last layer and verifies its
contents. Layer parameters are read from the "lsmtree" configuration
instance.
`)
		flag.PrintDefaults()
		os.Exit(2)
	}
	var (
		prefix  = flag.String("prefix", "", "path prefix for layers; a temporary directory if empty")
		n       = flag.Int("n", 100000, "number of items written per commit")
		commits = flag.Int("commits", 3, "number of commits")
		seed    = flag.Int64("seed", 1, "random seed")
		keep    = flag.Bool("keep", false, "keep layers after a successful check")
	)
	config.RegisterFlags("", os.ExpandEnv("$HOME/.lsmtree/config"))
	flag.Parse()
	must.Nil(config.ProcessFlags())
	if flag.NArg() != 0 || *n <= 0 || *commits <= 0 {
		flag.Usage()
	}
	var opts lsmtree.Options
	config.Must("lsmtree", &opts)

	if *prefix == "" {
		dir, err := ioutil.TempDir("", "lsmcheck")
		must.Nil(err)
		defer os.RemoveAll(dir)
		*prefix = dir
	}
	c := &checker{
		store:   store.NewFiles(*prefix),
		opts:    opts,
		rand:    rand.New(rand.NewSource(*seed)),
		n:       *n,
		commits: *commits,
	}
	ctx := context.Background()
	err := c.run(ctx)
	if err == nil && !*keep {
		c.cleanup(ctx)
	}
	must.Nil(err, "lsmcheck")
	log.Print("lsmcheck: ok")
}

type checker struct {
	store   *store.Files
	opts    lsmtree.Options
	rand    *rand.Rand
	n       int
	commits int

	names []string
}

var fn merge.Func[keys.Int, string] = merge.PreferFirst[keys.Int, string]

func (c *checker) run(ctx context.Context) error {
	tree := lsmtree.New(fn, lsmtree.WithOptions(c.opts))
	defer tree.Close()
	want := make(map[keys.Int]string)
	keySpace := int64(c.n) * int64(c.commits) * 2
	for i := 0; i < c.commits; i++ {
		for j := 0; j < c.n; j++ {
			k := keys.Int(c.rand.Int63n(keySpace))
			v := fmt.Sprintf("%d:%d", i, j)
			tree.ReplaceOrInsert(layer.MakeItem(k, v))
			want[k] = v
		}
		name := fmt.Sprintf("layer-%04d", i)
		start := time.Now()
		if err := tree.Commit(ctx, c.store.Handle(name)); err != nil {
			return err
		}
		c.names = append(c.names, name)
		log.Printf("lsmcheck: committed %s in %s", name, time.Since(start))
	}
	log.Printf("lsmcheck: %s", tree.Stats())

	last := c.store.Handle(c.names[len(c.names)-1])
	reopened, err := lsmtree.Open(ctx, fn, []store.Handle{last}, lsmtree.WithOptions(c.opts))
	if err != nil {
		return err
	}
	defer reopened.Close()
	it, err := reopened.Iter(ctx)
	if err != nil {
		return err
	}
	defer it.Close()
	var (
		n    int
		prev keys.Int
	)
	for ref, ok := it.Get(); ok; ref, ok = it.Get() {
		if n > 0 && ref.Key <= prev {
			return fmt.Errorf("key %v follows key %v", ref.Key, prev)
		}
		if v, ok := want[ref.Key]; !ok {
			return fmt.Errorf("unexpected key %v", ref.Key)
		} else if v != ref.Value {
			return fmt.Errorf("key %v: got %q, want %q", ref.Key, ref.Value, v)
		}
		prev = ref.Key
		n++
		if err := it.Advance(ctx); err != nil {
			return err
		}
	}
	if n != len(want) {
		return fmt.Errorf("got %d items, want %d", n, len(want))
	}
	for i := 0; i < 1000; i++ {
		k := keys.Int(c.rand.Int63n(keySpace))
		item, ok, err := reopened.Find(ctx, k)
		if err != nil {
			return err
		}
		if v, present := want[k]; ok != present || ok && item.Value != v {
			return fmt.Errorf("find %v: got %v (%v), want %q (%v)", k, item.Value, ok, v, present)
		}
	}
	log.Printf("lsmcheck: verified %d items; %s", n, reopened.Stats())
	return nil
}

func (c *checker) cleanup(ctx context.Context) {
	for _, name := range c.names {
		if err := c.store.Remove(ctx, name); err != nil {
			log.Error.Printf("lsmcheck: remove %s: %v", name, err)
		}
	}
}
