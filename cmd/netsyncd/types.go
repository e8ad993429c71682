package main

import (
	"github.com/liangmanlin/netsync/codec"
	"github.com/liangmanlin/netsync/netobj"
)

// avatar is the object every connection gets, its owner moves it
type avatar struct {
	name   string
	pos    codec.Vector3
	health int32
}

func (a *avatar) SetName(v string)         { a.name = v }
func (a *avatar) GetName() string          { return a.name }
func (a *avatar) SetPos(v codec.Vector3)   { a.pos = v }
func (a *avatar) GetPos() codec.Vector3    { return a.pos }
func (a *avatar) Say(to int32, msg string) {}

func avatarReg() *netobj.Registration {
	return netobj.NewRegistration("avatar", func() *avatar { return &avatar{health: 100} }).Declare(
		netobj.Method1("SetName", (*avatar).SetName, netobj.Broadcast),
		netobj.Getter("GetName", (*avatar).GetName),
		netobj.Method1("SetPos", (*avatar).SetPos, netobj.ClientSend|netobj.Broadcast|netobj.Snapshot),
		netobj.Getter("GetPos", (*avatar).GetPos),
		netobj.Method2("Say", (*avatar).Say, netobj.ClientSend|netobj.Broadcast),
		netobj.Property("Health",
			func(a *avatar) int32 { return a.health },
			func(a *avatar, v int32) { a.health = v },
			netobj.Broadcast),
	)
}

// world is the one server object, it survives restarts through the store
type world struct {
	motd   string
	uptime int64
}

func worldReg() *netobj.Registration {
	return netobj.NewRegistration("world", func() *world { return &world{} }).Declare(
		netobj.Property("Motd",
			func(w *world) string { return w.motd },
			func(w *world, v string) { w.motd = v },
			netobj.Broadcast|netobj.Persistent),
		netobj.Property("Uptime",
			func(w *world) int64 { return w.uptime },
			func(w *world, v int64) { w.uptime = v },
			netobj.Broadcast|netobj.Persistent),
	)
}

// registrations must be the same on the server and its clients
func registrations() []*netobj.Registration {
	return []*netobj.Registration{avatarReg(), worldReg()}
}
