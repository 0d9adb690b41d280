/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli"

	"github.com/plasmacore/plasmacore/cmn"
)

const (
	commandCreate  = "create"
	commandSeal    = "seal"
	commandRef     = "ref"
	commandUnref   = "unref"
	commandDelete  = "delete"
	commandInspect = "inspect"
)

var (
	idFlag            = cli.StringFlag{Name: "id", Usage: "object id, as printed by create"}
	ownerFlag         = cli.StringFlag{Name: "owner", Value: "anonymous"}
	dataSizeFlag      = cli.Int64Flag{Name: "data-size", Value: 0}
	metaSizeFlag      = cli.Int64Flag{Name: "meta-size", Value: 0}
	allowFallbackFlag = cli.BoolFlag{Name: "allow-fallback"}
	stateFilterFlag   = cli.StringFlag{Name: "state", Usage: "filter by state: created | sealed"}
)

// objectCommands returns the plasmactl subcommands: create, seal,
// ref/unref, and delete drive the lifecycle manager directly; inspect
// prints the manager's debug dump, or with --state queries the debugdb
// index.
func objectCommands(getRT func() *runtime) []cli.Command {
	return []cli.Command{
		{
			Name:  commandCreate,
			Usage: "create a new object",
			Flags: []cli.Flag{ownerFlag, dataSizeFlag, metaSizeFlag, allowFallbackFlag},
			Action: func(c *cli.Context) error {
				id := newObjectID()
				info := cmn.ObjectInfo{
					ObjectID:     id,
					OwnerID:      c.String(ownerFlag.Name),
					DataSize:     c.Int64(dataSizeFlag.Name),
					MetadataSize: c.Int64(metaSizeFlag.Name),
				}
				obj, err := getRT().mgr.CreateObject(info, cmn.SourceCreatedByWorker, cmn.HostMemoryDevice, c.Bool(allowFallbackFlag.Name))
				if err != nil {
					return err
				}
				fmt.Println(obj.ObjectID.String())
				return nil
			},
		},
		{
			Name:  commandSeal,
			Usage: "seal an object",
			Flags: []cli.Flag{idFlag},
			Action: func(c *cli.Context) error {
				id, err := parseID(c)
				if err != nil {
					return err
				}
				if getRT().mgr.SealObject(id) == nil {
					return fmt.Errorf("seal: no such created object %s", id)
				}
				return nil
			},
		},
		{
			Name:  commandRef,
			Usage: "add a reference to an object",
			Flags: []cli.Flag{idFlag},
			Action: func(c *cli.Context) error {
				id, err := parseID(c)
				if err != nil {
					return err
				}
				if !getRT().mgr.AddReference(id) {
					return fmt.Errorf("ref: no such object %s", id)
				}
				return nil
			},
		},
		{
			Name:  commandUnref,
			Usage: "remove a reference from an object",
			Flags: []cli.Flag{idFlag},
			Action: func(c *cli.Context) error {
				id, err := parseID(c)
				if err != nil {
					return err
				}
				if !getRT().mgr.RemoveReference(id) {
					return fmt.Errorf("unref: no such object, or ref count already zero: %s", id)
				}
				return nil
			},
		},
		{
			Name:  commandDelete,
			Usage: "delete an object (deferred if still referenced)",
			Flags: []cli.Flag{idFlag},
			Action: func(c *cli.Context) error {
				id, err := parseID(c)
				if err != nil {
					return err
				}
				return getRT().mgr.DeleteObject(id)
			},
		},
		{
			Name:  commandInspect,
			Usage: "list tracked objects, optionally filtered by state",
			Flags: []cli.Flag{stateFilterFlag},
			Action: func(c *cli.Context) error {
				rt := getRT()
				if err := rt.idx.Refresh(rt.mgr.Snapshot()); err != nil {
					return err
				}
				want := c.String(stateFilterFlag.Name)
				if want == "" {
					var buf strings.Builder
					rt.mgr.GetDebugDump(&buf)
					fmt.Print(buf.String())
					return nil
				}
				recs, err := rt.idx.ByState(want)
				if err != nil {
					return err
				}
				for _, r := range recs {
					fmt.Printf("%s  %-8s size=%d refs=%d owner=%s\n", r.ObjectID, r.State, r.Size, r.RefCount, r.OwnerID)
				}
				return nil
			},
		},
	}
}

func parseID(c *cli.Context) (cmn.ObjectID, error) {
	s := c.String(idFlag.Name)
	b, err := hex.DecodeString(s)
	if err != nil {
		return cmn.ObjectID{}, fmt.Errorf("invalid --id %q: %v", s, err)
	}
	if len(b) != cmn.ObjectIDSize {
		return cmn.ObjectID{}, fmt.Errorf("--id %q must decode to %d bytes, got %d", s, cmn.ObjectIDSize, len(b))
	}
	return cmn.ObjectIDFromBytes(b), nil
}

// newObjectID mints a fresh ObjectID for the create command from a
// random UUID, zero-padded into the low bytes of the wider, opaque
// identifier the core expects. Ids are always supplied by the caller,
// never minted by the core itself.
func newObjectID() cmn.ObjectID {
	u := uuid.New()
	var id cmn.ObjectID
	copy(id[cmn.ObjectIDSize-len(u):], u[:])
	return id
}
