package model

// MobTemplate is immutable mob content keyed by MobID.
type MobTemplate struct {
	ID       MobID
	Name     string
	Level    int
	MaxHP    int
	Damage   int
	Armor    int
	XPReward int64
	Wanders  bool
}

// MobInstanceID identifies a spawned mob within one engine.
type MobInstanceID int64

// Mob is runtime-mutable mob state, owned by the engine that owns the
// containing zone.
type Mob struct {
	InstanceID MobInstanceID
	TemplateID MobID
	RoomID     RoomID
	HP         int

	// Target is the session currently engaging this mob; zero when idle.
	Target SessionID
}

// InCombat reports whether the mob has an engaged target.
func (m *Mob) InCombat() bool {
	return m.Target != 0
}
