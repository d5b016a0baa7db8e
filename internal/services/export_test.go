package services

// SetAccountFiles points the provisioner at test passwd and group files.
func (p *Provisioner) SetAccountFiles(passwd, group string) {
	p.passwdPath = passwd
	p.groupPath = group
}

var NextFreeID = nextFreeID
