package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/hpc-console/internal/inventory"
	"github.com/pandeptwidyaop/hpc-console/internal/models"
)

// HostHandler reads and edits the inventory file.
type HostHandler struct {
	store *inventory.Store
}

// NewHostHandler creates a new HostHandler instance.
func NewHostHandler(store *inventory.Store) *HostHandler {
	return &HostHandler{store: store}
}

// List returns the display list: all, one entry per group, then hosts. A
// missing inventory file lists as an empty inventory.
func (h *HostHandler) List(c *gin.Context) {
	inv, err := h.store.Load()
	if errors.Is(err, inventory.ErrNotFound) {
		log.Printf("[Inventory] %s not found, listing no hosts", h.store.Path())
		inv = inventory.Parse("")
		err = nil
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": inv.Entries,
		"groups":  inv.Groups,
		"skipped": inv.Skipped,
	})
}

// AddHost adds a host to a group, the default group when none is given.
func (h *HostHandler) AddHost(c *gin.Context) {
	var req models.CreateHostRequest
	if !bindJSON(c, &req) {
		return
	}

	host := models.Host{Name: req.Name, IP: req.IP, User: req.User, Connection: req.Connection}
	if err := h.store.AddHost(host, req.Group); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "host " + req.Name + " added"})
}

// RemoveHost removes every declaration of a host.
func (h *HostHandler) RemoveHost(c *gin.Context) {
	var req models.DeleteHostRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.store.RemoveHost(req.Name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "host " + req.Name + " removed"})
}

// AddGroup creates a group section with its hosts.
func (h *HostHandler) AddGroup(c *gin.Context) {
	var req models.CreateGroupRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.store.AddGroup(req.GroupName, req.Hosts); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "group " + req.GroupName + " created"})
}

// RemoveGroup removes a group section.
func (h *HostHandler) RemoveGroup(c *gin.Context) {
	var req models.DeleteGroupRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.store.RemoveGroup(req.GroupName); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "group " + req.GroupName + " removed"})
}
