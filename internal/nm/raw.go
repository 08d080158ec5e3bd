package nm

// Direct register pass-throughs. They add no sequencing of their own; callers
// extending the protocol own the resulting device state. Check Err after use.

func (c *Chip) NCount() uint16 { return c.get(RegNCount) }

func (c *Chip) MinIF() uint16     { return c.get(RegMinIF) }
func (c *Chip) SetMinIF(v uint16) { c.set(RegMinIF, v) }

func (c *Chip) MaxIF() uint16     { return c.get(RegMaxIF) }
func (c *Chip) SetMaxIF(v uint16) { c.set(RegMaxIF, v) }

func (c *Chip) GCR() uint16     { return c.get(RegGCR) }
func (c *Chip) SetGCR(v uint16) { c.set(RegGCR, v) }

func (c *Chip) Cat() uint16     { return c.get(RegCat) }
func (c *Chip) SetCat(v uint16) { c.set(RegCat, v) }

func (c *Chip) Dist() uint16 { return c.get(RegDist) }

func (c *Chip) SetNID(v uint16) { c.set(RegNID, v) }

func (c *Chip) NSR() uint16     { return c.get(RegNSR) }
func (c *Chip) SetNSR(v uint16) { c.set(RegNSR, v) }

func (c *Chip) AIF() uint16     { return c.get(RegAIF) }
func (c *Chip) SetAIF(v uint16) { c.set(RegAIF, v) }

func (c *Chip) NCR() uint16     { return c.get(RegNCR) }
func (c *Chip) SetNCR(v uint16) { c.set(RegNCR, v) }

func (c *Chip) Comp() uint16     { return c.get(RegComp) }
func (c *Chip) SetComp(v uint16) { c.set(RegComp, v) }

func (c *Chip) LComp() uint16     { return c.get(RegLComp) }
func (c *Chip) SetLComp(v uint16) { c.set(RegLComp, v) }

func (c *Chip) ResetChain() { c.set(RegResetChain, 0) }

// Revision reads the FPGA revision register of the connected platform.
func (c *Chip) Revision() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bus.Revision()
}

func (c *Chip) get(r Register) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(r)
}

func (c *Chip) set(r Register, v uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.write(r, v)
}
