package console

import (
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liangmanlin/netsync/codec"
	"github.com/liangmanlin/netsync/netobj"
)

type ball struct {
	pos   codec.Vector3
	color int32
}

func (b *ball) SetPos(v codec.Vector3) { b.pos = v }
func (b *ball) GetPos() codec.Vector3  { return b.pos }

func newService(t *testing.T) *netobj.ObjectService {
	t.Helper()
	svc := netobj.NewObjectService(codec.NewDefault(codec.DefaultOptions()).Freeze(), netobj.Config{
		Server: true,
		Clock:  func() int64 { return 1000 },
	})
	require.NoError(t, svc.Register(netobj.NewRegistration("ball", func() *ball { return &ball{} }).Declare(
		netobj.Method1("SetPos", (*ball).SetPos, netobj.Broadcast|netobj.Snapshot),
		netobj.Getter("GetPos", (*ball).GetPos),
		netobj.Property("Color",
			func(b *ball) int32 { return b.color },
			func(b *ball, v int32) { b.color = v },
			netobj.Broadcast),
	)))
	return svc
}

func TestExec(t *testing.T) {
	svc := newService(t)
	var ran int
	c := New(svc, WithRunner(func(f func()) { ran++; f() }))

	assert.Equal(t, "no objects", c.Exec("objects").Command)

	owner := uuid.New()
	a, err := svc.Create("ball", owner)
	require.NoError(t, err)
	require.NoError(t, a.Call("SetPos", codec.Vector3{X: 1}))
	require.NoError(t, a.Call("Color", int32(7)))

	rs := c.Exec("objects")
	assert.Equal(t, TypeResult, rs.Type)
	assert.Contains(t, rs.Command, "ball")
	assert.Contains(t, rs.Command, owner.String())

	rs = c.Exec("slot 0")
	assert.Contains(t, rs.Command, "state:   generated")
	assert.Contains(t, rs.Command, "queued:  1 reliable, 1 snapshot")
	assert.Contains(t, c.Exec("slot 9").Command, "not found")
	assert.Contains(t, c.Exec("slot x").Command, "bad object id")

	rs = c.Exec("members ball")
	reg, _ := svc.Registration("ball")
	assert.Contains(t, rs.Command, reg.Fingerprint())
	assert.Contains(t, rs.Command, "SetPos")
	assert.Contains(t, rs.Command, "Color")
	assert.Contains(t, c.Exec("members nope").Command, "not registered")

	assert.Contains(t, c.Exec("snapshot 0").Command, "has no snapshot")
	svc.CaptureAll(1000)
	rs = c.Exec("snapshot 0")
	assert.Contains(t, rs.Command, "SetPos")
	assert.Contains(t, rs.Command, "Color")
	assert.Contains(t, rs.Command, "7")

	rs = c.Exec("stats")
	assert.Contains(t, rs.Command, "objects: 1")
	assert.Contains(t, rs.Command, "generated")

	assert.Contains(t, c.Exec("delete 0").Command, "pending delete")
	assert.Contains(t, c.Exec("delete 0").Command, "can not be deleted")
	s, ok := svc.Slots().Get(0)
	require.True(t, ok)
	assert.Equal(t, netobj.StatePendingDelete, s.State())

	assert.Equal(t, 12, ran)
}

func TestExecHelp(t *testing.T) {
	c := New(newService(t))
	for _, line := range []string{"", "nope", "slot", "members"} {
		assert.Equal(t, TypeHelp, c.Exec(line).Type, line)
	}
	c.Register("boom", func([]string) string { panic("boom") }, Commit("panics"))
	rs := c.Exec("boom")
	assert.Equal(t, TypeResult, rs.Type)
	assert.Equal(t, "", rs.Command)
	assert.Equal(t, "param [level] error", c.Exec("loglevel 9").Command)
}

func TestBuildHelp(t *testing.T) {
	c := New(newService(t))
	list, err := c.List()
	require.NoError(t, err)
	help, pl, confirm := buildHelp(list)
	assert.Len(t, help, len(list))
	assert.Len(t, pl, len(list)+1)
	assert.Equal(t, map[string]string{"delete": "delete the object"}, confirm)
	assert.Contains(t, help[0], "delete")
	assert.Equal(t, " id", list["slot"].Args)
}

func TestRemote(t *testing.T) {
	svc := newService(t)
	_, err := svc.Create("ball", uuid.Nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := NewServer(New(svc), ln)
	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	cl, err := Dial(s.Addr().String())
	require.NoError(t, err)
	defer cl.Close()

	list, err := cl.List()
	require.NoError(t, err)
	assert.Contains(t, list, "objects")
	assert.Equal(t, "delete the object", list["delete"].Confirm)

	rs, err := cl.Call("stats")
	require.NoError(t, err)
	assert.Equal(t, TypeResult, rs.Type)
	assert.Contains(t, rs.Command, "objects: 1")

	rs, err = cl.Call("what")
	require.NoError(t, err)
	assert.Equal(t, TypeHelp, rs.Type)

	s.Close()
	require.NoError(t, <-done)
}
