package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config for:
//   - Field constraints declared in struct tags
//   - Duplicate GUIDs, node ids and LIDs across entities
//   - Links referencing unknown nodes, out-of-range ports or ports cabled twice
//   - Routes on ports the entity does not have, and LIDs routed via two ports
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}
	var errs []string
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, formatFieldError(fe))
		}
	}

	validateEntities(cfg.Fabric.Entities, &errs)
	validateLinks(&cfg.Fabric, &errs)

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func formatFieldError(fe validator.FieldError) string {
	ns := strings.TrimPrefix(fe.Namespace(), "Config.")
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed %s=%s (got %v)", ns, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s: failed %s", ns, fe.Tag())
}

func validateEntities(defs []EntityDef, errs *[]string) {
	guids := make(map[uint64]string)
	nodes := make(map[string]string)
	lids := make(map[uint16]string)

	for i, d := range defs {
		loc := fmt.Sprintf("entities[%d]", i)
		if g, err := strconv.ParseUint(d.GUID, 0, 64); err != nil {
			*errs = append(*errs, fmt.Sprintf("%s: invalid guid %q", loc, d.GUID))
		} else if prev, dup := guids[g]; dup {
			*errs = append(*errs, fmt.Sprintf("duplicate guid %q (first seen at %s, again at %s)", d.GUID, prev, loc))
		} else {
			guids[g] = loc
		}

		key := d.NodeKey()
		if prev, dup := nodes[key]; dup {
			*errs = append(*errs, fmt.Sprintf("duplicate node %q (first seen at %s, again at %s)", key, prev, loc))
		} else {
			nodes[key] = loc
		}

		for _, lid := range d.LIDs {
			if lid == 0 {
				*errs = append(*errs, fmt.Sprintf("%s: lid 0 is reserved", loc))
				continue
			}
			if prev, dup := lids[lid]; dup {
				*errs = append(*errs, fmt.Sprintf("duplicate lid %d (first seen at %s, again at %s)", lid, prev, loc))
			} else {
				lids[lid] = loc
			}
		}

		routed := make(map[uint16]int)
		for j, r := range d.Routes {
			if r.Port > d.Ports {
				*errs = append(*errs, fmt.Sprintf("%s.routes[%d]: port %d out of range (entity has %d ports)", loc, j, r.Port, d.Ports))
			}
			for _, lid := range r.LIDs {
				if prev, dup := routed[lid]; dup && prev != r.Port {
					*errs = append(*errs, fmt.Sprintf("%s.routes[%d]: lid %d already routed via port %d", loc, j, lid, prev))
					continue
				}
				routed[lid] = r.Port
			}
		}
	}
}

func validateLinks(fc *FabricConf, errs *[]string) {
	portCount := make(map[string]int, len(fc.Entities))
	for i := range fc.Entities {
		portCount[fc.Entities[i].NodeKey()] = fc.Entities[i].Ports
	}
	type portKey struct {
		node string
		port int
	}
	used := make(map[portKey]string)

	for i, l := range fc.Links {
		loc := fmt.Sprintf("links[%d]", i)
		for _, ep := range []EndpointDef{l.From, l.To} {
			n, ok := portCount[ep.Node]
			if !ok {
				*errs = append(*errs, fmt.Sprintf("%s: unknown node %q", loc, ep.Node))
				continue
			}
			if ep.Port < 1 || ep.Port > n {
				*errs = append(*errs, fmt.Sprintf("%s: node %q has no port %d", loc, ep.Node, ep.Port))
				continue
			}
			k := portKey{ep.Node, ep.Port}
			if prev, dup := used[k]; dup {
				*errs = append(*errs, fmt.Sprintf("%s: port %s/%d already cabled by %s", loc, ep.Node, ep.Port, prev))
				continue
			}
			used[k] = loc
		}
	}
}
